// Package event defines the control messages exchanged between the
// watcher, the asset synchronizer and the reload loop, and the broadcast
// Bus that carries them.
package event
