/*
Package events provides a lightweight broker for deploy-run events.

The orchestrator and its components publish one event per observable step
(file created/updated/deleted, script executed, seed inserted, run
completed). Subscribers receive events over buffered channels; slow
subscribers drop events rather than stall a transfer worker. The CLI
subscribes in verbose mode to print progress lines.
*/
package events
