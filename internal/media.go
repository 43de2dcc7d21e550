package internal

import (
	"fmt"
	"io"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

// MediaInfo describes the video track of a media file.
type MediaInfo struct {
	Codec      string // sample entry type, e.g. avc1
	Width      int
	Height     int
	TimeScale  uint32
	SampleDur  uint32 // nominal sample duration in TimeScale units
	NrSamples  uint32
	Duration   uint64 // sum of all sample durations in TimeScale units
	GopLength  uint32 // distance between the first two sync samples, 0 if unknown
	Fragmented bool
}

// FrameDuration returns the nominal display time of one frame.
func (m MediaInfo) FrameDuration() time.Duration {
	if m.TimeScale == 0 {
		return 0
	}
	return time.Duration(uint64(m.SampleDur) * uint64(time.Second) / uint64(m.TimeScale))
}

// LoopDuration returns the time after which a looping stream wraps.
func (m MediaInfo) LoopDuration() time.Duration {
	if m.TimeScale == 0 {
		return 0
	}
	return time.Duration(m.Duration * uint64(time.Second) / uint64(m.TimeScale))
}

// SampleTime returns the presentation time of sample index, assuming the
// nominal sample duration.
func (m MediaInfo) SampleTime(index uint32) time.Duration {
	if m.TimeScale == 0 {
		return 0
	}
	return time.Duration(uint64(index) * uint64(m.SampleDur) * uint64(time.Second) / uint64(m.TimeScale))
}

// FrameRate returns the nominal frame rate in frames per second.
func (m MediaInfo) FrameRate() float64 {
	if m.SampleDur == 0 {
		return 0
	}
	return float64(m.TimeScale) / float64(m.SampleDur)
}

// ProbeMedia decodes the box structure of an MP4 file and extracts the
// timeline of its first video track. Media data is skipped, not read.
// Fragmented and progressive files are accepted.
func ProbeMedia(rs io.ReadSeeker) (*MediaInfo, error) {
	m, err := mp4.DecodeFile(rs, mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return nil, fmt.Errorf("could not decode file: %w", err)
	}
	if m.Moov == nil {
		return nil, fmt.Errorf("no moov box")
	}
	var trak *mp4.TrakBox
	for _, t := range m.Moov.Traks {
		if t.Mdia != nil && t.Mdia.Hdlr != nil && t.Mdia.Hdlr.HandlerType == "vide" {
			trak = t
			break
		}
	}
	if trak == nil {
		return nil, fmt.Errorf("no video track")
	}
	mdia := trak.Mdia
	sampleDesc, err := mdia.Minf.Stbl.Stsd.GetSampleDescription(0)
	if err != nil {
		return nil, fmt.Errorf("could not get sample description: %w", err)
	}
	vse, ok := sampleDesc.(*mp4.VisualSampleEntryBox)
	if !ok {
		return nil, fmt.Errorf("unsupported sample description type: %s", sampleDesc.Type())
	}
	info := &MediaInfo{
		Codec:      sampleDesc.Type(),
		Width:      int(vse.Width),
		Height:     int(vse.Height),
		TimeScale:  mdia.Mdhd.Timescale,
		Fragmented: m.IsFragmented(),
	}
	if info.TimeScale == 0 {
		return nil, fmt.Errorf("track has zero timescale")
	}

	var durs []uint32
	var syncs []int
	if info.Fragmented {
		durs, syncs, err = fragmentedTimeline(m, trak.Tkhd.TrackID)
	} else {
		durs, syncs, err = progressiveTimeline(mdia.Minf.Stbl)
	}
	if err != nil {
		return nil, err
	}
	if len(durs) == 0 {
		return nil, fmt.Errorf("video track has no samples")
	}
	for i, d := range durs {
		if info.SampleDur == 0 {
			info.SampleDur = d
		} else {
			// Last sample may have different duration, but all other should be same
			if d != info.SampleDur && i != len(durs)-1 {
				return nil, fmt.Errorf("sample duration is not consistent")
			}
		}
		info.Duration += uint64(d)
	}
	if info.SampleDur == 0 {
		return nil, fmt.Errorf("zero sample duration")
	}
	info.NrSamples = uint32(len(durs))
	if len(syncs) > 1 {
		info.GopLength = uint32(syncs[1] - syncs[0])
	}
	return info, nil
}

// fragmentedTimeline collects sample durations and sync sample indices from
// the trun boxes of all fragments belonging to trackID.
func fragmentedTimeline(m *mp4.File, trackID uint32) ([]uint32, []int, error) {
	trex := findTrex(m.Moov, trackID)
	if trex == nil {
		return nil, nil, fmt.Errorf("no trex for track %d", trackID)
	}
	var durs []uint32
	var syncs []int
	for _, seg := range m.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd == nil || traf.Tfhd.TrackID != trackID {
					continue
				}
				for _, trun := range traf.Truns {
					trun.AddSampleDefaultValues(traf.Tfhd, trex)
					for i := range trun.Samples {
						if trun.Samples[i].IsSync() {
							syncs = append(syncs, len(durs))
						}
						durs = append(durs, trun.Samples[i].Dur)
					}
				}
			}
		}
	}
	return durs, syncs, nil
}

func findTrex(moov *mp4.MoovBox, trackID uint32) *mp4.TrexBox {
	if moov.Mvex == nil {
		return nil
	}
	for _, trex := range moov.Mvex.Trexs {
		if trex.TrackID == trackID {
			return trex
		}
	}
	return moov.Mvex.Trex
}

// progressiveTimeline expands the stts run-length table into one duration
// per sample and reads sync samples from stss (all samples are sync if absent).
func progressiveTimeline(stbl *mp4.StblBox) ([]uint32, []int, error) {
	if stbl.Stts == nil || stbl.Stsz == nil {
		return nil, nil, fmt.Errorf("missing stts or stsz box")
	}
	nrSamples := int(stbl.Stsz.SampleNumber)
	durs := make([]uint32, 0, nrSamples)
	for i, count := range stbl.Stts.SampleCount {
		for j := uint32(0); j < count; j++ {
			durs = append(durs, stbl.Stts.SampleTimeDelta[i])
		}
	}
	if len(durs) != nrSamples {
		return nil, nil, fmt.Errorf("stts covers %d samples, stsz has %d", len(durs), nrSamples)
	}
	var syncs []int
	if stbl.Stss == nil {
		for i := range durs {
			syncs = append(syncs, i)
		}
		return durs, syncs, nil
	}
	for _, nr := range stbl.Stss.SampleNumber {
		syncs = append(syncs, int(nr)-1) // stss is 1-based
	}
	return durs, syncs, nil
}
