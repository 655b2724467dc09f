package transport

import "net"

type TransportHandler interface {
	ListenAndAccept() error // listen and serve connections in the background
	Addr() net.Addr         // bound listener address
	Close() error           // stop accepting and release the listener
}
