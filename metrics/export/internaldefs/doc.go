// Package internaldefs holds the metric names, help strings and histogram
// bounds shared by the exporters under metrics/export.
package internaldefs
