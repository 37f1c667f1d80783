// Package server implements the HTTP API of the 3D mapping service. It wires
// the routes to the intake processor, the mesh generator and the optional
// object storage mirror, and provides lifecycle helpers used by tests and the
// production binary.
package server
