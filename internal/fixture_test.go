package internal

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type clipParams struct {
	width     int
	height    int
	timeScale uint32
	sampleDur uint32
	nrSamples int
	gopLength int
	lastDur   uint32 // duration of the last sample, sampleDur if 0

	progressive bool // moov with sample tables followed by one mdat
	noStss      bool // progressive only: leave out stss, so every sample is sync
	extraStsz   int  // progressive only: samples in stsz missing from stts
}

// clip2s is a 2 second clip at 30 fps.
var clip2s = clipParams{
	width:     64,
	height:    48,
	timeScale: 90000,
	sampleDur: 3000,
	nrSamples: 60,
	gopLength: 30,
}

// clip25 is a 2 second clip at 25 fps with exact frame times.
var clip25 = clipParams{
	width:     64,
	height:    48,
	timeScale: 1000,
	sampleDur: 40,
	nrSamples: 50,
	gopLength: 25,
}

func (c clipParams) info() MediaInfo {
	return MediaInfo{TimeScale: c.timeScale, SampleDur: c.sampleDur, NrSamples: uint32(c.nrSamples),
		Duration: uint64(c.sampleDur) * uint64(c.nrSamples)}
}

// sampleDurs returns the duration of every sample of the clip.
func (c clipParams) sampleDurs() []uint32 {
	durs := make([]uint32, c.nrSamples)
	for i := range durs {
		durs[i] = c.sampleDur
	}
	if c.lastDur != 0 && c.nrSamples > 0 {
		durs[c.nrSamples-1] = c.lastDur
	}
	return durs
}

// makeClip creates an MP4 file with one video track. Sample payloads are
// dummy bytes since no test decodes them.
func makeClip(t *testing.T, c clipParams) []byte {
	t.Helper()
	if c.progressive {
		var buf bytes.Buffer
		writeProgressiveHeader(t, &buf, c)
		mdat := &mp4.MdatBox{}
		for i := 0; i < c.nrSamples; i++ {
			mdat.AddSampleData(sampleData)
		}
		require.NoError(t, mdat.Encode(&buf))
		return buf.Bytes()
	}
	init := mp4.CreateEmptyInit()
	*init.Ftyp = *mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "avc1", "mp41"})
	init.AddEmptyTrack(c.timeScale, "video", "und")
	trak := init.Moov.Trak
	trak.Mdia.Minf.Stbl.Stsd.AddChild(mp4.CreateVisualSampleEntryBox("avc1", uint16(c.width), uint16(c.height), nil))
	trackID := trak.Tkhd.TrackID

	var buf bytes.Buffer
	require.NoError(t, init.Encode(&buf))

	gop := max(c.gopLength, 1)
	decodeTime := uint64(0)
	for start, seq := 0, uint32(1); start < c.nrSamples; start, seq = start+gop, seq+1 {
		frag, err := mp4.CreateFragment(seq, trackID)
		require.NoError(t, err)
		for i := start; i < min(start+gop, c.nrSamples); i++ {
			flags := mp4.NonSyncSampleFlags
			if i == start {
				flags = mp4.SyncSampleFlags
			}
			dur := c.sampleDurs()[i]
			frag.AddFullSample(mp4.FullSample{
				Sample:     mp4.NewSample(flags, dur, uint32(len(sampleData)), 0),
				DecodeTime: decodeTime,
				Data:       sampleData,
			})
			decodeTime += uint64(dur)
		}
		require.NoError(t, frag.Encode(&buf))
	}
	return buf.Bytes()
}

// sampleData is an AVC access unit delimiter.
var sampleData = []byte{0, 0, 0, 2, 0x09, 0xf0}

// writeProgressiveHeader writes ftyp and a moov box whose sample tables
// describe c. The samples are expected in one mdat right after the moov.
func writeProgressiveHeader(t *testing.T, w io.Writer, c clipParams) {
	t.Helper()
	init := mp4.CreateEmptyInit()
	*init.Ftyp = *mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "avc1", "mp41"})
	init.AddEmptyTrack(c.timeScale, "video", "und")
	moov := init.Moov
	children := moov.Children[:0]
	for _, b := range moov.Children {
		if _, ok := b.(*mp4.MvexBox); !ok {
			children = append(children, b)
		}
	}
	moov.Children = children
	moov.Mvex = nil

	stbl := moov.Trak.Mdia.Minf.Stbl
	stbl.Stsd.AddChild(mp4.CreateVisualSampleEntryBox("avc1", uint16(c.width), uint16(c.height), nil))
	durs := c.sampleDurs()
	for i, d := range durs {
		n := len(stbl.Stts.SampleCount)
		if i > 0 && stbl.Stts.SampleTimeDelta[n-1] == d {
			stbl.Stts.SampleCount[n-1]++
			continue
		}
		stbl.Stts.SampleCount = append(stbl.Stts.SampleCount, 1)
		stbl.Stts.SampleTimeDelta = append(stbl.Stts.SampleTimeDelta, d)
	}
	stbl.Stsz.SampleUniformSize = uint32(len(sampleData))
	stbl.Stsz.SampleNumber = uint32(c.nrSamples + c.extraStsz)
	if !c.noStss {
		stss := &mp4.StssBox{}
		for i := 0; i < c.nrSamples; i += max(c.gopLength, 1) {
			stss.SampleNumber = append(stss.SampleNumber, uint32(i+1))
		}
		stbl.AddChild(stss)
	}
	require.NoError(t, init.Encode(w))
}

// writeClip stores a generated clip at path on fsys.
func writeClip(t *testing.T, fsys afero.Fs, path string, c clipParams) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, path, makeClip(t, c), 0o644))
}

// frameAt returns the index of the clip frame displayed at playback time pos.
func frameAt(c clipParams, pos time.Duration) int {
	info := c.info()
	pos %= info.LoopDuration()
	idx := 0
	for idx+1 < c.nrSamples && info.SampleTime(uint32(idx+1)) <= pos {
		idx++
	}
	return idx
}
