// Package database provides the SQLite media index.
//
// It stores one row per indexed image (path relative to the media directory,
// size, modification time, probed dimensions and decoder format) and answers
// the lookups behind media: locators. Key-value metadata such as the time of
// the last index run lives in a second table.
//
// The database uses WAL mode for improved concurrent read performance
// and includes automatic schema initialization.
package database
