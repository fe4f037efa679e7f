package cache

// Msgpack protocol for the cache daemon over a Unix domain socket.
// One request -> one response using msgpack.Encoder/Decoder per connection.

const (
	opOpen = "open"
	opGet  = "get"
	opPut  = "put"
	opDrop = "drop"
	opList = "list"
)

type Request struct {
	Op         string `msgpack:"op"` // "open" | "get" | "put" | "drop" | "list"
	Generation string `msgpack:"generation,omitempty"`
	Key        string `msgpack:"key,omitempty"`
	Entry      *Entry `msgpack:"entry,omitempty"`
}

type Response struct {
	OK          bool     `msgpack:"ok"`
	Entry       *Entry   `msgpack:"entry,omitempty"`
	Generations []string `msgpack:"generations,omitempty"`
	Error       string   `msgpack:"error,omitempty"`
}
