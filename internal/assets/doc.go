// Package assets provides the files a conversion needs besides its input:
// pandoc Lua filters, command mapping tables and the proof stylesheet.
//
// # Lookup
//
// An Overlay stacks FSLoaders: the user's --asset-path directory first,
// then the tree embedded with go:embed. A user directory holds only the
// files it overrides, in the same layout:
//
//	{dir}/
//	├── filters/
//	│   └── {name}.lua           # pandoc Lua filters (equation-ids)
//	├── mappings/
//	│   └── {name}.yaml          # command/environment mapping tables
//	└── styles/
//	    └── {name}.css           # proof stylesheets
//
// Names never contain separators or dots, and the directory is read through
// an os.Root.
package assets
