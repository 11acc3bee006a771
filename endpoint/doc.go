// Package endpoint implements the unix domain socket plumbing shared by the
// source and sink sides of the relay: listening sockets, accepting
// connections, and dialing destinations.
//
// Everything else in the module depends only on io.Reader and io.Writer,
// with Conn as the concrete socket implementation.
package endpoint
