// Package cache indexes installed packages on disk.
//
// The cache is a two-level directory tree shared by every shelf process on
// the machine:
//
//	<root>/
//	├── lodash/
//	│   ├── 4.17.20/
//	│   └── 4.17.21/
//	├── @types/node/
//	│   └── 20.11.5/
//	└── .staging/<run-id>/     in-flight installs
//
// Each version directory is a slot: a self-contained npm install of one
// package at one version. A slot only counts once it carries a completion
// marker (.shelf-slot.json), which [Store.Commit] writes before moving the
// staged install into place with a single rename. Readers never see half
// written slots, and there is no lock: the rename is the only commit point.
//
// Entries may disappear at any time (another process running
// "shelf cache clear"). Readers treat a vanished entry as absent.
package cache
