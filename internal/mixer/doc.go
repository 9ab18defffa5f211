// Package mixer accumulates pan-weighted call audio into a bounded frame
// ring and drains it as a fixed-rate, silence-filled 4-channel PCM stream.
package mixer
