// Package engine contains the economy core: the resource registry, the
// feedback token pool, the economy engine and the ticker that drives it.
//
// The Engine is the only writer of the balance and resource levels. It has no
// locks; hosts submit work through a Ticker so that frames, taps and purchases
// are applied one at a time. Every visible change is reported to an
// events.Sink.
package engine
