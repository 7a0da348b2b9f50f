// Package storage persists the subscription roster across restarts.
//
// Two drivers are available: a dependency-free JSON file backend and an
// optional SQLite backend selected with the "sqlite" build tag.
package storage
