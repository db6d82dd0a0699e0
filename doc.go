// Package prefs provides typed, persistent application preferences.
//
// Preferences live in two roots: a machine-wide system root and a per-user
// root, both scoped to the running application's name. Each Key names a value
// inside a namespace node (by convention the import path of the declaring
// package, see PackageNamespace) and carries the default returned while
// nothing is stored. Values are booleans, integers, strings, or opaque
// objects serialized by a Codec.
//
// Roots come from a Provider, which creates each of them lazily and once over
// a Backend. The storage subpackage holds the backends: an XML file store,
// an in-memory store, SQLite and PostgreSQL. A read-through Cache (cache
// subpackage) and an Encrypter for sensitive keys are optional.
//
//	backend := storage.NewXMLBackend(dir)
//	provider, err := prefs.NewProvider(backend, prefs.WithAppName("editor"))
//	if err != nil {
//		return err
//	}
//	p, err := prefs.New(prefs.WithProvider(provider))
//	if err != nil {
//		return err
//	}
//	theme, err := p.GetString(ctx, ThemeKey)
package prefs
