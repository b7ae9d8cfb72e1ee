package domain

import (
	"sort"
	"strconv"
)

// TrafficRecord is one peer's delta traffic observation emitted by the
// watchdog for a single tick, and the row shape the persistence write
// contract accepts.
type TrafficRecord struct {
	NetworkPublicKey PublicKey
	DevicePublicKey  PublicKey
	TimeUnix         int64
	RxDelta          uint64
	RxRaw            uint64
	TxDelta          uint64
	TxRaw            uint64
}

// RxTx is a (received, transmitted) byte pair.
type RxTx struct {
	Rx uint64 `json:"rx"`
	Tx uint64 `json:"tx"`
}

// DeviceTraffic is one peer's total traffic plus its per-timestamp deltas
// within a TrafficInfo window.
type DeviceTraffic struct {
	Traffic RxTx            `json:"traffic"`
	Times   map[string]RxTx `json:"times"`
}

// NetworkTraffic is one network's total traffic plus its per-device
// breakdown within a TrafficInfo window.
type NetworkTraffic struct {
	Traffic RxTx                     `json:"traffic"`
	Devices map[string]DeviceTraffic `json:"devices"`
}

// TrafficInfo is the control-plane wire form of one watchdog tick's
// accumulated traffic: totals nested down to network, device, and
// timestamp.
type TrafficInfo struct {
	StartTime int64                     `json:"start_time"`
	StopTime  int64                     `json:"stop_time"`
	Traffic   RxTx                      `json:"traffic"`
	Networks  map[string]NetworkTraffic `json:"networks"`
}

// TrafficAccumulator collects TrafficRecords produced over one watchdog
// tick and builds the nested TrafficInfo the control-plane session
// publishes, while also exposing the flat record list the persistence
// writer contract consumes.
type TrafficAccumulator struct {
	startTime int64
	records   []TrafficRecord
}

// NewTrafficAccumulator starts an accumulator for one tick.
func NewTrafficAccumulator(startTime int64) *TrafficAccumulator {
	return &TrafficAccumulator{startTime: startTime}
}

// Add appends one peer's delta observation.
func (a *TrafficAccumulator) Add(rec TrafficRecord) {
	a.records = append(a.records, rec)
}

// Records returns the flat list of observations added so far, in the order
// they were added — this is what the persistence writer contract accepts.
func (a *TrafficAccumulator) Records() []TrafficRecord {
	return a.records
}

// Build renders the accumulated records into the nested TrafficInfo wire
// form, closing the window at stopTime.
func (a *TrafficAccumulator) Build(stopTime int64) TrafficInfo {
	info := TrafficInfo{
		StartTime: a.startTime,
		StopTime:  stopTime,
		Networks:  map[string]NetworkTraffic{},
	}

	for _, rec := range a.records {
		netKey := rec.NetworkPublicKey.String()
		devKey := rec.DevicePublicKey.String()

		netTraffic, ok := info.Networks[netKey]
		if !ok {
			netTraffic = NetworkTraffic{Devices: map[string]DeviceTraffic{}}
		}

		devTraffic, ok := netTraffic.Devices[devKey]
		if !ok {
			devTraffic = DeviceTraffic{Times: map[string]RxTx{}}
		}

		rxtx := RxTx{Rx: rec.RxDelta, Tx: rec.TxDelta}
		devTraffic.Traffic.Rx += rec.RxDelta
		devTraffic.Traffic.Tx += rec.TxDelta
		devTraffic.Times[formatUnix(rec.TimeUnix)] = rxtx

		netTraffic.Traffic.Rx += rec.RxDelta
		netTraffic.Traffic.Tx += rec.TxDelta
		netTraffic.Devices[devKey] = devTraffic
		info.Networks[netKey] = netTraffic

		info.Traffic.Rx += rec.RxDelta
		info.Traffic.Tx += rec.TxDelta
	}

	return info
}

func formatUnix(t int64) string {
	// decimal, matching the wire contract's string-keyed unix timestamps.
	return strconv.FormatInt(t, 10)
}

// SortedNetworkKeys returns TrafficInfo network keys in sorted order, for
// deterministic test assertions and logging.
func SortedNetworkKeys(info TrafficInfo) []string {
	keys := make([]string, 0, len(info.Networks))
	for k := range info.Networks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
