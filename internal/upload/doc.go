// Package upload runs the two-step audience upload flow.
//
// Analyze ingests and validates a CSV, proposes a column mapping and
// keeps the parsed table in Redis as a short-lived session. Confirm
// applies the (possibly edited) mapping, builds the audience profile and
// drops the session. Sessions expire on their own if never confirmed.
//
// Size limits and the .csv extension are enforced here, before the file
// reaches the datanorm pipeline.
package upload
