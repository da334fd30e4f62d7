package relay

import "errors"

// errNoProducer means a viewer connected before any worker has streamed to
// this hostname.
var errNoProducer = errors.New("relay: no active producer for hostname")

// errProducerDisconnected means the producer for this hostname closed its
// connection or this consumer's backlog overflowed and it was dropped.
var errProducerDisconnected = errors.New("relay: producer disconnected or consumer dropped")
