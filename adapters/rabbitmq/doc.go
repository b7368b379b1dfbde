/*
Package rabbitmq forwards fired events to a RabbitMQ topic exchange.
It includes an auto-reconnect publisher and supports optional header propagation
via an ext.HeaderPropagator.
*/
package rabbitmq
