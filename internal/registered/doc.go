// Package registered implements the Registered Buildings pipeline.
//
// Download fetches each building's register PDF, makes it searchable with
// ocrmypdf, pulls out text and images with poppler-utils and writes a
// Markdown summary per reference. Extract sends the OCR text to a chat
// completion model and records structured facts (architects, builders,
// construction dates, reasons for registration) in a CSV, resuming where a
// previous run stopped. Merge folds the extracted facts back into the index
// CSV, flags rows needing review and optionally rewrites the Markdown files.
package registered
