package reader

import "fmt"

// Stream iterates over a range of one channel in chunks. It holds only a
// cursor; every chunk is an independent windowed read, so abandoning a
// stream early needs no cleanup beyond dropping it. A Stream is not safe
// for concurrent use. Open a new stream to start over.
//
//	s, err := e.Stream(0, 0, 0, 0)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	for s.Next() {
//	    process(s.Chunk())
//	}
//	return s.Err()
type Stream struct {
	e       *Experiment
	channel int
	cursor  int
	end     int
	chunk   int
	current []float64
	err     error
}

// Stream returns a stream over total seconds of channel from start seconds
// in chunks of chunk seconds. A zero total reads to the end of the channel;
// a zero chunk picks one second of samples, or the whole channel if shorter.
func (e *Experiment) Stream(channel int, start, total, chunk float64) (*Stream, error) {
	return e.StreamSamples(channel, e.toIndex(start), e.toIndex(total), e.toIndex(chunk))
}

// StreamSamples is the sample-index counterpart of Stream.
func (e *Experiment) StreamSamples(channel, start, total, chunk int) (*Stream, error) {
	length, err := e.ChannelLength(channel)
	if err != nil {
		return nil, err
	}
	if start < 0 || total < 0 || chunk < 0 {
		return nil, fmt.Errorf("%w: stream from sample %d for %d samples in chunks of %d on channel %d",
			ErrRange, start, total, chunk, channel)
	}

	if chunk == 0 {
		chunk = int(e.samplerate)
		if length < chunk {
			chunk = length
		}
	}

	start = min(start, length)
	end := length
	if total > 0 && total < end-start {
		end = start + total
	}

	return &Stream{
		e:       e,
		channel: channel,
		cursor:  start,
		end:     end,
		chunk:   chunk,
	}, nil
}

// Next reads the next chunk. It returns false when the range is exhausted
// or a read failed; check Err to tell the two apart.
func (s *Stream) Next() bool {
	s.current = nil
	if s.err != nil || s.cursor >= s.end || s.chunk <= 0 {
		return false
	}

	n := s.chunk
	if n > s.end-s.cursor {
		n = s.end - s.cursor
	}
	// Fold a short tail into this chunk rather than reading it on its own.
	if rest := s.end - s.cursor - n; rest > 0 && 2*rest < s.chunk {
		n += rest
	}

	data, err := s.e.ReadSamples(s.channel, s.cursor, n)
	if err != nil {
		s.err = err
		return false
	}
	s.cursor += n
	s.current = data
	return true
}

// Chunk returns the chunk read by the last call to Next.
func (s *Stream) Chunk() []float64 {
	return s.current
}

// Cursor returns the sample index where the next chunk starts.
func (s *Stream) Cursor() int {
	return s.cursor
}

// Err returns the first read error.
func (s *Stream) Err() error {
	return s.err
}

// Close ends the stream.
func (s *Stream) Close() error {
	s.cursor = s.end
	s.current = nil
	return nil
}
