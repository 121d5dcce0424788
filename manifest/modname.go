package manifest

import (
	"strings"
	"unicode"
)

// ModuleName converts a dependency name to a script identifier.
// "my-lib" -> "my_lib", "MyLib" -> "mylib", "9lives" -> "_9lives"
func ModuleName(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '-' || r == '.' || r == ' ':
			sb.WriteByte('_')
		case r == '_' || unicode.IsDigit(r) || (r < unicode.MaxASCII && unicode.IsLetter(r)):
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	out := sb.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// reservedModules lists root table names a dependency may not shadow:
// the standard library modules, the base functions and the keywords.
var reservedModules = map[string]bool{
	"base": true, "string": true, "math": true, "io": true, "blob": true, "system": true,

	"print": true, "error": true, "assert": true, "type": true, "tostring": true,
	"tointeger": true, "tofloat": true, "len": true, "array": true,
	"getroottable": true, "collectgarbage": true, "weakref": true,
	"seterrorhandler": true, "compilestring": true, "dofile": true,

	"local": true, "function": true, "return": true, "if": true, "else": true,
	"while": true, "do": true, "for": true, "foreach": true, "in": true,
	"break": true, "continue": true, "yield": true, "resume": true, "throw": true,
	"try": true, "catch": true, "class": true, "extends": true, "constructor": true,
	"static": true, "this": true, "null": true, "true": true,
	"false": true, "typeof": true, "instanceof": true, "delete": true,
	"clone": true, "const": true, "enum": true, "switch": true, "case": true,
	"default": true,
}

// IsReservedModule reports whether name collides with a built-in.
func IsReservedModule(name string) bool {
	return reservedModules[name]
}
