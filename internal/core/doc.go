// Package core ties workbook extraction to persistence and export.
//
// A [Service] receives uploaded workbooks, keeps a registry of the files it
// holds, classifies each upload once by name into a [dataset.Kind] and
// syncs the matching sheets into the configured [store.Store]. It also
// serves sheet data for browsing, writes JSON exports and passes bucket
// queries through to the store. The same logic backs the HTTP server and
// the command line tool.
//
// # Sync
//
// Sheets are extracted and persisted independently. A sheet that fails to
// extract or to persist is reported in [SyncReport.Errors] and never stops
// its siblings:
//
//   - execution exports: every non-SQL sheet goes through the generic
//     extractor into "ejecucion_fpi_<sheet>"
//   - goal workbooks: the formation sheets go through the goal extractor
//     into "metas_<sheet>"
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]. Each
// category carries a code for support reference:
//
//   - SHT001-SHT003: sheet and layout errors
//   - FILE001-FILE006: file errors (size, type, unreadable workbook)
//   - DB001-DB006: store errors
//   - UPL001-UPL004: upload errors (busy, cancelled, timeout)
package core
