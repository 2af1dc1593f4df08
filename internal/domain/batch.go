package domain

// StopRecord describes a stop to insert together with its measured distances
// to other stops, keyed by stop name
type StopRecord struct {
	Name        string
	Coordinates Coordinates
	Distances   map[string]int
}

// BusRecord describes a bus to insert; stops are referenced by name
type BusRecord struct {
	Name        string
	Stops       []string
	IsRoundtrip bool
}

// Batch is a complete set of base requests, applied stops first
type Batch struct {
	Stops []StopRecord
	Buses []BusRecord
}
