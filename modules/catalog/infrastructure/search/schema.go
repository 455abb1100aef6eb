package search

// DatasetsMapping is the schema for the dataset index. Identifiers and the
// region are exact-match keywords, names and descriptions are analyzed text,
// and metadata stays a dynamic object so upload-time keys survive untouched.
const DatasetsMapping = `{
  "mappings": {
    "properties": {
      "dataset_id":   { "type": "keyword" },
      "file_name":    { "type": "text", "fields": { "raw": { "type": "keyword" } } },
      "checksum":     { "type": "keyword" },
      "description":  { "type": "text" },
      "region":       { "type": "keyword" },
      "period_start": { "type": "date" },
      "period_end":   { "type": "date" },
      "size_bytes":   { "type": "long" },
      "row_count":    { "type": "long" },
      "metadata":     { "type": "object", "dynamic": true },
      "uploaded_at":  { "type": "date" },
      "updated_at":   { "type": "date" }
    }
  }
}`
