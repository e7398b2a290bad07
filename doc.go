// Package mdbanner renders the notes of a Markdown vault with a banner
// image at the top, driven by each note's YAML frontmatter.
//
// # Quick Start
//
// Open a vault, render a note, and close when done:
//
//	eng, err := mdbanner.New("/path/to/vault")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	out, err := eng.Render(ctx, "Trips/Iceland.md", 900)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("iceland.html", []byte(out), 0644)
//
// Render returns a self-contained document: banner and embedded images are
// inlined as data: URIs.
//
// A note opts in with a banner property:
//
//	---
//	banner: "[[pics/glacier.jpg]]"
//	banner-height: 260
//	banner-y: 40
//	icon: "🏔"
//	---
//
// Sources can be vault links, http(s) URLs, data: URIs, or bare keywords
// answered by a SearchProvider.
//
// # Live Views
//
// Hosts that keep notes open use views. Frontmatter edits are debounced,
// resolutions run off the event loop, and stale results are discarded:
//
//	id, err := eng.OpenView(ctx, "Trips/Iceland.md", 900)
//	...
//	eng.SetFrontmatter("Trips/Iceland.md", map[string]any{"banner-height": 180})
//	eng.Wait(ctx)
//	html, err := eng.ViewHTML(id, false)
//	...
//	eng.CloseView(id)
//
// Remote images are served to views through blob:mdbanner/ object URLs,
// shared between views and released with the last one.
//
// # Configuration
//
// Use functional options to customize the engine:
//
//	eng, err := mdbanner.New(dir,
//	    mdbanner.WithSettings(settings),
//	    mdbanner.WithLogger(logger),
//	    mdbanner.WithSearchProvider(provider),
//	    mdbanner.WithCSS(".mdbanner { border: 0; }"),
//	)
//
// Settings hold property aliases, default banner values, the style and
// the fetch, sync and shuffle parameters. LoadSettings reads them from a
// YAML file; SaveSettings applies new settings to open views.
//
// # PDF Export
//
// ExportPDF prints a view through headless Chrome (go-rod). For batch
// export, ExporterPool manages several browser instances.
//
// For containers and CI environments, set ROD_NO_SANDBOX=1 to disable the
// Chrome sandbox. Use ROD_BROWSER_BIN to specify a custom Chrome binary.
package mdbanner
