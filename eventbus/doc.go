/*
Package eventbus provides typed in-process event channels and a multi-type bus composed of them.

A Channel delivers each fired event to the listeners registered when Fire was entered, in
registration order. Listeners may subscribe, unsubscribe or fire again from inside a callback;
the listener set is only locked while a snapshot is copied, never while callbacks run.

Subscriptions are handles: closing one removes the listener exactly once, and a handle that
becomes unreachable without being closed is released by the garbage collector.
*/
package eventbus
