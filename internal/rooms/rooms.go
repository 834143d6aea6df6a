package rooms

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnknownRoom = errors.New("unknown room")

type Coord struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Directory maps room numbers to map coordinates. It is read-only once built.
type Directory struct {
	rooms map[string]Coord
}

type document struct {
	Rooms map[string]Coord `yaml:"rooms"`
}

func New(rooms map[string]Coord) *Directory {
	d := &Directory{rooms: make(map[string]Coord, len(rooms))}
	for k, c := range rooms {
		d.rooms[normalize(k)] = c
	}
	return d
}

func Load(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rooms: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (*Directory, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	if len(doc.Rooms) == 0 {
		return nil, errors.New("decode rooms: no rooms defined")
	}
	return New(doc.Rooms), nil
}

func (d *Directory) Coords(room string) (Coord, error) {
	c, ok := d.rooms[normalize(room)]
	if !ok {
		return Coord{}, fmt.Errorf("%w: %q", ErrUnknownRoom, room)
	}
	return c, nil
}

func (d *Directory) Len() int {
	return len(d.rooms)
}

// "Room 5", "room5" and "5" all name the same room.
func normalize(room string) string {
	s := strings.ToLower(strings.TrimSpace(room))
	s = strings.TrimPrefix(s, "room")
	return strings.TrimSpace(s)
}
