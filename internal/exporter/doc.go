// Package exporter writes analysis result tables to files: one CSV per
// table and a combined xlsx workbook with one sheet per table. The analyzer
// binary uses it to hand tabular results to people who live in
// spreadsheets.
package exporter
