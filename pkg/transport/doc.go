// Package transport serves the Secure Control Protocol over HTTP.
//
// Routes:
//
//	/secure-control                 nonce, payload, payloadLength, mac
//	/secure-control/discover-hello  payload
//	everything else                 404 "File Not Found" listing
//
// Arguments are read from the query string and then from an urlencoded
// body, keeping arrival order. A non-form body is exposed as the argument
// "plain". The first argument with a given name wins.
//
// Requests are processed one at a time. A response carrying a post action
// (restart, reset) is flushed first; the action runs after a fixed delay
// during which no further request is processed.
//
// Malformed requests get status 404 with the body
//
//	Malformed payload
//
//	 name: value
//
// with one line per received argument, verbatim.
package transport
