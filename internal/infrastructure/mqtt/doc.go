// Package mqtt wraps paho.mqtt.golang for Lumina Core.
//
// It provides connection management with auto-reconnect, publish and
// subscribe helpers with panic recovery, Last Will and Testament for
// offline detection, and topic builders for the Lumina topic scheme.
//
// Device-facing topics are room-prefixed and published by the devices
// themselves:
//
//	{room}/device-register          device announces itself
//	{room}/sensor-device            sensor reading payloads
//	{room}/device-status/{device}   online/offline transitions
//
// Core's own topics live under the "lumina" prefix.
//
// All methods are safe for concurrent use. Subscriptions are restored
// automatically on reconnection.
package mqtt
