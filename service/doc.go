// Package service provides the upload and verify workflows for loading the
// service-rule dataset into a vector index and a graph store.
//
// This package is intended for embedding the loader into other programs
// without shelling out to the CLI.
package service
