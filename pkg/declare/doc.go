// Package declare finds inline dependency declarations in script source.
//
// # Overview
//
// A shelf script declares its npm dependencies with calls to a reserved
// global function:
//
//	var _ = include("lodash")              // latest published version
//	const dayjs = include("dayjs", "^1.11") // any installed 1.x >= 1.11
//
// [Parse] turns source text into a syntax tree without evaluating it and
// walks the whole tree looking for those calls, wherever they occur: as a
// declaration initializer, inside a member chain, as a function argument,
// in a nested function body, and so on. Each call becomes a [Site] holding
// its literal arguments plus diagnostic context (line, column and the
// nearest enclosing variable).
//
// # Rules
//
// The set of dependencies must be knowable before the script runs, so every
// argument has to be a string literal:
//
//   - include() takes one or two arguments
//   - the name must be a string literal ("a" + "b", identifiers and
//     template literals are rejected)
//   - the version, when present, must be a string literal
//
// A violation is reported as a [*DeclarationError]. Source that does not
// parse at all is reported as a [*SyntaxError], whose Incomplete flag tells
// interactive hosts whether more input could still make it valid.
//
// # Ordering
//
// Sites are returned in document order. Repeated declarations are kept as
// separate sites; deduplication happens during resolution.
package declare
