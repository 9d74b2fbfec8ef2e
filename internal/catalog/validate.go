package catalog

import "regexp"

// columnNamePattern matches a hashed column name as the catalog expects
// it: lowercase letters, digits and underscores (which covers hex
// digests), never the reserved "$"-prefixed namespace the query compiler
// uses for internal keys.
var columnNamePattern = regexp.MustCompile(`^[0-9a-z_]+$`)

// ValidColumnName reports whether name is an acceptable hashed column
// name for a create_table index declaration.
func ValidColumnName(name string) bool {
	return columnNamePattern.MatchString(name)
}
