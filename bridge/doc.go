/*
Package bridge forwards events fired on the bus, and payloads passing through an
interceptor chain, to an external broker via ext.EventPublisher.

Bridges are ordinary listeners and interceptors: publish failures surface through
Fire and Invoke like any other listener or interceptor error.
*/
package bridge
