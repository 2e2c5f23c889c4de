package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagEndpoint      string
	flagAuthorization string
	flagVideoInput    string
	flagAudioInput    string
	flagVideoPT       int
	flagAudioPT       int
	flagVideoSSRC     uint32
	flagAudioSSRC     uint32
	flagAudioRate     int
	flagAudioCh       int
	flagHandshakeMs   int
	flagPacketSize    int
	flagHelp          bool
	flagVersion       bool
)

func init() {
	flag.StringVarP(&flagEndpoint, "endpoint", "e", "", "WHIP endpoint URL (required)")
	flag.StringVarP(&flagAuthorization, "authorization", "a", "", "Bearer token sent with the SDP offer")

	flag.StringVarP(&flagVideoInput, "video", "i", "", "Annex B H.264 elementary stream file")
	flag.IntVar(&flagVideoPT, "video-pt", 96, "RTP payload type for H.264")
	flag.Uint32Var(&flagVideoSSRC, "video-ssrc", 1, "RTP SSRC for the video stream")

	flag.StringVar(&flagAudioInput, "audio", "", "Raw length-prefixed Opus frame file")
	flag.IntVar(&flagAudioPT, "audio-pt", 111, "RTP payload type for Opus")
	flag.Uint32Var(&flagAudioSSRC, "audio-ssrc", 2, "RTP SSRC for the audio stream")
	flag.IntVar(&flagAudioRate, "audio-rate", 48000, "Opus clock rate advertised in the offer")
	flag.IntVar(&flagAudioCh, "audio-channels", 2, "Opus channel count advertised in the offer")

	flag.IntVarP(&flagHandshakeMs, "handshake-timeout", "t", 5000, "ICE/DTLS handshake timeout, in milliseconds")
	flag.IntVarP(&flagPacketSize, "pkt-size", "p", 1200, "Maximum outgoing UDP datagram size, in bytes")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Publish pre-encoded H.264/Opus media to a WHIP endpoint

Usage: whip-publish --endpoint=URL [OPTION]...

Signaling:
  -e, --endpoint=URL         WHIP endpoint to POST the SDP offer to (required)
  -a, --authorization=TOKEN  Bearer token sent with the offer

Video source:
  -i, --video=FILE           Annex B H.264 elementary stream file
      --video-pt=NUM         RTP payload type for H.264 (default: 96)
      --video-ssrc=NUM       RTP SSRC for the video stream (default: 1)

Audio source:
      --audio=FILE           Raw length-prefixed Opus frame file
      --audio-pt=NUM         RTP payload type for Opus (default: 111)
      --audio-ssrc=NUM       RTP SSRC for the audio stream (default: 2)
      --audio-rate=NUM       Opus clock rate advertised in the offer (default: 48000)
      --audio-channels=NUM   Opus channel count advertised in the offer (default: 2)

Transport:
  -t, --handshake-timeout=MS Handshake timeout, in milliseconds (default: 5000)
  -p, --pkt-size=NUM         Maximum outgoing UDP datagram size (default: 1200)

Miscellaneous:
  -h, --help                 Prints this help message and exits
  -v, --version              Prints version information and exits
`

func help() {
	b := color.New(color.FgCyan)
	b.Println("whip-publish")
	fmt.Print(helpString)
}

func version() {
	fmt.Fprintln(os.Stderr, "whip-publish (unversioned build)")
}
