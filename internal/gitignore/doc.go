// Package gitignore compiles gitignore-style patterns and matches paths
// against them, following the syntax documented at
// https://git-scm.com/docs/gitignore
//
// Supported: wildcards (*, ?, **), rooted patterns (/build), negation
// (!keep.log), directory-only patterns (build/), character classes, and
// nested ignore files scoped to a base directory. Matching is thread-safe;
// later rules override earlier ones, so negations work the way git's do.
//
//	m := gitignore.New()
//	m.AddPattern("*.log")
//	m.AddPattern("!important.log")
//	m.Match("error.log", false)     // true
//	m.Match("important.log", false) // false
//
// A nested .gitignore applies only under its own directory:
//
//	m.AddFromFile(filepath.Join(root, "src", ".gitignore"), "src")
package gitignore
