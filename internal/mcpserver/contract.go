package mcpserver

// UsageGuide tells LLM consumers how to query and feed the document base.
const UsageGuide = `# Dossier Usage Guide

Dossier indexes the technical documents (tender files, contracts, specs)
placed under its watched root and answers questions from them.

## Asking

- Prefer ` + "`" + `ask` + "`" + ` for a final answer; it cites its sources as file, page and chunk id.
- Use ` + "`" + `search_documents` + "`" + ` to inspect the raw passages before answering yourself.
- Naming a company, region, market number or version in the question restricts
  the search to the files whose metadata matches **any** of those values.
  The keys are listed by the ` + "`" + `dossier://metadata-keys` + "`" + ` resource.
- Chunk ids read ` + "`" + `<path>:<page>:<n>` + "`" + `, pages counted from zero.

## Feeding

- Import files with ` + "`" + `import_document` + "`" + ` from an http(s) URL or a base64 data URI.
- Supported formats: pdf, docx, pptx, xlsx, xls. Anything else is rejected.
- The file is written under the root; the watcher indexes it a few seconds later.
  ` + "`" + `list_documents` + "`" + ` shows "(not indexed)" until then.
- Metadata (market, document type, region, company, version) is extracted from
  the preamble of PDF files only. ` + "`" + `get_metadata` + "`" + ` returns an empty record while
  extraction found nothing.
- An existing file is never overwritten; pick another ` + "`" + `path` + "`" + `.
`
