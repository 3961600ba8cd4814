package dvid

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/janelia-flyem/go/gocheck"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

type DataSuite struct{}

var _ = Suite(&DataSuite{})

func (s *DataSuite) TestSerialization(c *C) {
	data := bytes.Repeat([]byte("responsibilities "), 200)
	for _, compression := range []Compression{Uncompressed, Snappy, Zstd} {
		for _, checksum := range []Checksum{NoChecksum, CRC32} {
			ser, err := SerializeData(data, compression, checksum)
			c.Assert(err, IsNil)
			if compression != Uncompressed {
				c.Assert(len(ser) < len(data), Equals, true)
			}

			out, compress, err := DeserializeData(ser, true)
			c.Assert(err, IsNil)
			c.Assert(compress, Equals, compression)
			c.Assert(out, DeepEquals, data)

			if checksum != NoChecksum {
				ser[len(ser)-1] ^= 0x04 // Flip a bit
				_, _, err = DeserializeData(ser, true)
				c.Assert(err, NotNil)
			}
		}
	}
	_, _, err := DeserializeData(nil, true)
	c.Assert(err, NotNil)
	_, err = SerializeData(data, Compression(7), NoChecksum)
	c.Assert(err, NotNil)
}

func (s *DataSuite) TestSerializationFormat(c *C) {
	format := EncodeSerializationFormat(Zstd, CRC32)
	compress, checksum := DecodeSerializationFormat(format)
	c.Assert(compress, Equals, Zstd)
	c.Assert(checksum, Equals, CRC32)

	for _, name := range []string{"none", "snappy", "zstd"} {
		compress, err := ParseCompression(name)
		c.Assert(err, IsNil)
		if name != "none" {
			c.Assert(compress.String(), Equals, name)
		}
	}
	_, err := ParseCompression("lz4")
	c.Assert(err, NotNil)
}

func (s *DataSuite) TestConfig(c *C) {
	var config Config
	config.SetAll(map[string]interface{}{
		"Path":           "/tmp/db",
		"ReadOnly":       true,
		"ValueThreshold": int64(512),
		"ratio":          2.0,
	})
	path, found, err := config.GetString("path")
	c.Assert(err, IsNil)
	c.Assert(found, Equals, true)
	c.Assert(path, Equals, "/tmp/db")

	ro, found, err := config.GetBool("readonly")
	c.Assert(err, IsNil)
	c.Assert(found, Equals, true)
	c.Assert(ro, Equals, true)

	i, found, err := config.GetInt("VALUETHRESHOLD")
	c.Assert(err, IsNil)
	c.Assert(found, Equals, true)
	c.Assert(i, Equals, 512)

	i, _, err = config.GetInt("ratio")
	c.Assert(err, IsNil)
	c.Assert(i, Equals, 2)

	_, found, err = config.GetString("missing")
	c.Assert(err, IsNil)
	c.Assert(found, Equals, false)

	_, _, err = config.GetBool("path")
	c.Assert(err, NotNil)
}

func (s *DataSuite) TestCommand(c *C) {
	cmd := Command(strings.Fields("relax q=a.q steps=3 extra out=b.q"))
	c.Assert(cmd.Name(), Equals, "relax")
	c.Assert(cmd.Argument(1), Equals, "extra")
	c.Assert(cmd.Argument(2), Equals, "")
	v, found := cmd.Parameter("steps")
	c.Assert(found, Equals, true)
	c.Assert(v, Equals, "3")
	_, found = cmd.Parameter("w")
	c.Assert(found, Equals, false)

	settings := cmd.Settings()
	out, found, err := settings.GetString("out")
	c.Assert(err, IsNil)
	c.Assert(found, Equals, true)
	c.Assert(out, Equals, "b.q")
	c.Assert(cmd.String(), Equals, "relax q=a.q steps=3 extra out=b.q")
}

func (s *DataSuite) TestPoint3d(c *C) {
	a := Point3d{10, 21, 837821}
	b := Point3d{78312, -200, 40123}
	result := a.Add(b)
	c.Assert(result.Value(0), Equals, a[0]+b[0])
	c.Assert(result.Value(1), Equals, a[1]+b[1])
	c.Assert(result.Value(2), Equals, a[2]+b[2])

	c.Assert(Point3d{2, 3, 4}.Prod(), Equals, int64(24))
	c.Assert(Point3d{0, 0, 0}.Parity(), Equals, 0)
	c.Assert(Point3d{1, 0, 0}.Parity(), Equals, 1)
	c.Assert(Point3d{-1, 0, 0}.Parity(), Equals, 1)
	c.Assert(Point3d{1, 2, 3}.Parity(), Equals, 0)
	c.Assert(a.String(), Equals, "(10,21,837821)")

	p, err := StringToPoint3d("1, 2,3", ",")
	c.Assert(err, IsNil)
	c.Assert(p, Equals, Point3d{1, 2, 3})
	_, err = StringToPoint3d("1,2", ",")
	c.Assert(err, NotNil)

	f, err := StringToFloat32s("1,1.5,4", ",")
	c.Assert(err, IsNil)
	c.Assert(f, DeepEquals, []float32{1, 1.5, 4})
	_, err = StringToFloat32s("1,x", ",")
	c.Assert(err, NotNil)
}

func (s *DataSuite) TestPaths(c *C) {
	dir := c.MkDir()
	abs, err := ConvertToAbsolute("logs/mrf.log", dir)
	c.Assert(err, IsNil)
	c.Assert(abs, Equals, filepath.Join(dir, "logs/mrf.log"))
	abs, err = ConvertToAbsolute("/var/log/mrf.log", dir)
	c.Assert(err, IsNil)
	c.Assert(abs, Equals, "/var/log/mrf.log")

	filename := filepath.Join(dir, "exists")
	c.Assert(FileExists(filename), Equals, false)
	c.Assert(os.WriteFile(filename, nil, 0644), IsNil)
	c.Assert(FileExists(filename), Equals, true)
}

func (s *DataSuite) TestLogModes(c *C) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(os.Stderr)
	oldMode := LogMode()
	defer SetLogMode(oldMode)

	SetLogMode(WarningMode)
	Infof("hidden %d\n", 1)
	Warningf("shown %d\n", 2)
	tlog := NewTimeLog()
	tlog.Errorf("timed error")
	out := buf.String()
	c.Assert(strings.Contains(out, "hidden"), Equals, false)
	c.Assert(strings.Contains(out, "shown 2"), Equals, true)
	c.Assert(strings.Contains(out, "timed error: "), Equals, true)

	for _, level := range []string{"debug", "info", "warning", "error", "critical", "silent"} {
		m, err := ParseLogMode(level)
		c.Assert(err, IsNil)
		c.Assert(m.String(), Equals, level)
	}
	_, err := ParseLogMode("chatty")
	c.Assert(err, NotNil)
}
