// Package rpc implements a client for Odoo's JSON-RPC 2.0 web service: the
// db/login/password "common" login, the dynamic execute_kw dispatcher, and
// the fields_get introspection call. It is the only package in odoodrift
// that talks to the Odoo server.
package rpc
