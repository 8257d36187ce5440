//go:build js && wasm

package main

import (
	"context"
	"fmt"
	"syscall/js"

	"github.com/himanishpuri/soundmark/internal/audio"
	"github.com/himanishpuri/soundmark/internal/fingerprint"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorProcessing
	ErrorSpectrogramFailed
	ErrorPeakExtraction
	ErrorHashGeneration
)

// Processes audio samples and returns fingerprints in the shape accepted by
// POST /api/match/fingerprints. The server must run with the default sample
// rate and pipeline settings.
// Returns: {error: number, data: array | string}
func generateFingerprints(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 3 arguments: audioArray, sampleRate, channels")
	}

	audioDataJS := args[0]
	sampleRateJS := args[1]
	channelsJS := args[2]

	if audioDataJS.Type() != js.TypeObject {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray must be an Array or Float64Array")
	}
	if sampleRateJS.Type() != js.TypeNumber || channelsJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "sampleRate and channels must be numbers")
	}

	sampleRate := sampleRateJS.Int()
	channels := channelsJS.Int()
	if sampleRate <= 0 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid sample rate: %d", sampleRate))
	}
	if channels < 1 || channels > 2 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Channels must be 1 (mono) or 2 (stereo), got: %d", channels))
	}

	length := audioDataJS.Length()
	if length == 0 {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray is empty")
	}

	samples := make([]float64, length)
	for i := 0; i < length; i++ {
		val := audioDataJS.Index(i)
		if val.Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("audioArray element %d is not a number", i))
		}
		samples[i] = val.Float()
	}
	if channels == 2 {
		samples = stereoToMono(samples)
	}

	clip := audio.Clip{Samples: samples, SampleRate: sampleRate}.Resample(audio.DefaultSampleRate)

	spec, err := fingerprint.BuildSpectrogram(clip.Samples, clip.SampleRate)
	if err != nil {
		return makeErrorResponse(ErrorSpectrogramFailed, fmt.Sprintf("Failed to generate spectrogram: %v", err))
	}

	peaks, err := fingerprint.DetectPeaks(context.Background(), spec, fingerprint.DefaultPeakOptions())
	if err != nil {
		return makeErrorResponse(ErrorProcessing, fmt.Sprintf("Peak detection failed: %v", err))
	}
	if peaks.Len() == 0 {
		return makeErrorResponse(ErrorPeakExtraction, "No peaks found in audio (audio may be silent or too short)")
	}

	prints, times, err := fingerprint.Generate(peaks, fingerprint.DefaultFanOut)
	if err != nil || len(prints) == 0 {
		return makeErrorResponse(ErrorHashGeneration, "No fingerprints generated")
	}

	arr := js.Global().Get("Array").New()
	for i, fp := range prints {
		obj := js.Global().Get("Object").New()
		obj.Set("anchor_freq", fp.AnchorFreq)
		obj.Set("partner_freq", fp.PartnerFreq)
		obj.Set("delta", fp.Delta)
		obj.Set("time", times[i])
		arr.SetIndex(i, obj)
	}

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", arr)
	return result
}

func stereoToMono(stereo []float64) []float64 {
	mono := make([]float64, len(stereo)/2)
	for i := range mono {
		mono[i] = (stereo[i*2] + stereo[i*2+1]) / 2.0
	}
	return mono
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	logf := func(method, msg string) {
		if !console.IsUndefined() {
			console.Call(method, msg)
		}
	}

	js.Global().Set("generateFingerprints", js.FuncOf(generateFingerprints))
	logf("log", "📝 generateFingerprints function registered")

	window := js.Global().Get("window")
	if window.IsUndefined() {
		logf("error", "❌ window object is undefined!")
	} else {
		event := js.Global().Get("CustomEvent").New("wasmReady", js.Global().Get("Object").New())
		window.Call("dispatchEvent", event)
		logf("log", "✅ Soundmark WASM module loaded and ready")
	}

	select {}
}
