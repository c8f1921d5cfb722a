package tektronix

import (
	"strings"

	"github.com/pkg/errors"
)

// command headers.  Set commands are the header, a space, and the argument;
// queries are the header followed by ?
const (
	cmdCurve            = "curve?"
	cmdAcquireMode      = "acquire:mode"
	cmdDataSource       = "data:source"
	cmdDataEncoding     = "data:encdg"
	cmdDataStart        = "data:start"
	cmdDataStop         = "data:stop"
	cmdDataWidth        = "data:width"
	cmdTriggerSource    = "trigger:main:edge:source"
	cmdTriggerLevel     = "trigger:main:level"
	cmdTriggerType      = "trigger:main:type"
	cmdHorizPosition    = "horizontal:position"
	cmdHorizScale       = "horizontal:main:scale"
	cmdHorizRecordLen   = "horizontal:recordlength"
	cmdVerticalScale    = "scale"    // prefixed by the channel, CH1:scale
	cmdVerticalPosition = "position" // prefixed by the channel, CH1:position
	cmdPreamble         = "wfmpre"
)

// reply tokens
const (
	AcquireSample     = "SAM"
	AcquireHiRes      = "HIR"
	AcquireAverage    = "AVE"
	AcquirePeakDetect = "PEAK"
	AcquireEnvelope   = "ENVE"

	EncodingASCII = "ASCI"
	EncodingRIB   = "RIB"
	EncodingRPB   = "RPB"
	EncodingSRI   = "SRI"
	EncodingSRP   = "SRP"

	TriggerEdge  = "EDGE"
	TriggerLogic = "LOGI"
	TriggerPulse = "PUL"
	TriggerComm  = "COMM"
	TriggerVideo = "VID"

	TriggerLine = "LINE"
	TriggerAux  = "AUX"
)

// read lengths for each query, in bytes
const (
	lenDataMode     = 10
	lenAcquireMode  = 10
	lenDataWidth    = 10
	lenHorizScale   = 15
	lenRecordLength = 15
	lenTriggerLevel = 15
	lenStartPoint   = 20
	lenHorizPos     = 20
	lenVertical     = 20
	lenTriggerType  = 20
	lenStopPoint    = 30
	lenTriggerChan  = 30
	lenDataSource   = 50
	lenPreamble     = 200
	lenCurveChunk   = 1000
)

// Channels are the four analog inputs of the TDS540
var Channels = []string{"CH1", "CH2", "CH3", "CH4"}

// aliases map what a user might type to the token the scope replies with
var (
	acquireAliases = map[string]string{
		"SAM": AcquireSample, "SAMPLE": AcquireSample,
		"HIR": AcquireHiRes, "HIRES": AcquireHiRes,
		"AVE": AcquireAverage, "AVERAGE": AcquireAverage,
		"PEAK": AcquirePeakDetect, "PEAKDETECT": AcquirePeakDetect,
		"ENVE": AcquireEnvelope, "ENVELOPE": AcquireEnvelope,
	}
	encodingAliases = map[string]string{
		"ASCI": EncodingASCII, "ASCII": EncodingASCII,
		"RIB": EncodingRIB, "RIBINARY": EncodingRIB, "BINARY": EncodingRIB,
		"RPB": EncodingRPB, "RPBINARY": EncodingRPB,
		"SRI": EncodingSRI, "SRIBINARY": EncodingSRI,
		"SRP": EncodingSRP, "SRPBINARY": EncodingSRP,
	}
	triggerTypeAliases = map[string]string{
		"EDGE": TriggerEdge,
		"LOGI": TriggerLogic, "LOGIC": TriggerLogic,
		"PUL": TriggerPulse, "PULSE": TriggerPulse,
		"COMM": TriggerComm, "COMMUNICATION": TriggerComm,
		"VID": TriggerVideo, "VIDEO": TriggerVideo,
	}
	triggerSourceAliases = map[string]string{
		"CH1": "CH1", "CH2": "CH2", "CH3": "CH3", "CH4": "CH4",
		"1": "CH1", "2": "CH2", "3": "CH3", "4": "CH4",
		"LINE": TriggerLine,
		"AUX": TriggerAux, "AUXILIARY": TriggerAux,
	}
)

func token(aliases map[string]string, kind, s string) (string, error) {
	key := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	tok, ok := aliases[key]
	if !ok {
		return "", errors.Errorf("tektronix: unknown %s %q", kind, s)
	}
	return tok, nil
}

// AcquireModeToken returns the canonical token for an acquire mode,
// "sample" and "SAM" both give SAM
func AcquireModeToken(s string) (string, error) {
	return token(acquireAliases, "acquire mode", s)
}

// EncodingToken returns the canonical token for a data encoding
func EncodingToken(s string) (string, error) {
	return token(encodingAliases, "data encoding", s)
}

// TriggerTypeToken returns the canonical token for a trigger type
func TriggerTypeToken(s string) (string, error) {
	return token(triggerTypeAliases, "trigger type", s)
}

// TriggerSourceToken returns the canonical token for a trigger source
func TriggerSourceToken(s string) (string, error) {
	return token(triggerSourceAliases, "trigger source", s)
}

// channelToken validates one of the four analog channels
func channelToken(s string) (string, error) {
	key := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if len(key) == 1 {
		key = "CH" + key
	}
	for _, ch := range Channels {
		if ch == key {
			return ch, nil
		}
	}
	return "", errors.Errorf("tektronix: unknown channel %q", s)
}

func setCmd(header, arg string) string {
	return header + " " + arg
}

func queryCmd(header string) string {
	return header + "?"
}

func channelHeader(channel, header string) string {
	return channel + ":" + header
}
