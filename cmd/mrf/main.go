// Command-line interface for MRF relaxation: runs the relaxation server or relaxes
// volumes stored in local files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/janelia-flyem/mrf/datastore"
	"github.com/janelia-flyem/mrf/dvid"
	"github.com/janelia-flyem/mrf/mrf"
	"github.com/janelia-flyem/mrf/server"
	"github.com/janelia-flyem/mrf/storage"

	"github.com/dustin/go-humanize"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Number of logical CPUs to use.
	useCPU = flag.Int("numcpu", 0, "")
)

const helpMessage = `
mrf relaxes per-voxel class responsibilities with a Markov random field.

Usage: mrf [options] <command>

      -numcpu     =number   Number of logical CPUs to use.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	about
	help

	serve <config.toml>
		Runs the HTTP server described by the TOML configuration.

	relax q=<file> p=<file> g=<file> [out=<file>] [steps=<n>]
	      [anisotropy=<x,y,z> | voxelsize=<x,y,z>] [compression=none|snappy|zstd]
		Relaxes responsibilities in encoded volume files.  Without "out" the
		responsibilities file is overwritten.

	info <file>
		Describes an encoded volume file.  For responsibilities, also counts the
		voxels whose largest responsibility is each class.

	convert <in> <out> mode=packed-float|packed-quantized [compression=none|snappy|zstd]
		Converts a symmetric, zero-diagonal voxel-dense interaction into a packed
		encoding, or quantizes a packed-float interaction.

	token <config.toml> <user>
		Prints a JWT for the user signed with the configured secret key.
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Print(helpMessage)
	}
	flag.Parse()

	if flag.NArg() >= 1 && flag.Args()[0] == "help" {
		*showHelp = true
	}
	if *runVerbose {
		dvid.Verbose = true
		dvid.SetLogMode(dvid.DebugMode)
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}
	if *useCPU != 0 {
		dvid.NumCPU = *useCPU
	}
	runtime.GOMAXPROCS(dvid.NumCPU)

	// Capture ctrl+c and other interrupts.  Then handle graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := DoCommand(ctx, dvid.Command(flag.Args())); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// DoCommand serves as a switchboard for commands.
func DoCommand(ctx context.Context, cmd dvid.Command) error {
	switch cmd.Name() {
	case "about":
		fmt.Printf("mrf server API %s\nStorage engines: %s\nCPUs: %d\n", server.Version, storage.EnginesAvailable(), dvid.NumCPU)
		return nil
	case "serve":
		return DoServe(ctx, cmd)
	case "relax":
		return DoRelax(ctx, cmd)
	case "info":
		return DoInfo(cmd)
	case "convert":
		return DoConvert(cmd)
	case "token":
		return DoToken(cmd)
	default:
		return fmt.Errorf("unknown command %q; try 'mrf help'", cmd.Name())
	}
}

// DoServe loads the configuration and runs the server until interrupted.
func DoServe(ctx context.Context, cmd dvid.Command) error {
	configPath := cmd.Argument(1)
	if configPath == "" {
		return fmt.Errorf("serve command must be followed by the path to the TOML configuration")
	}
	config, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}
	config.Logging.SetLogger()
	if *runVerbose {
		dvid.SetLogMode(dvid.DebugMode)
	}
	s, err := server.New(config)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Serve(ctx)
}

func requiredSetting(cmd dvid.Command, key string) (string, error) {
	v, found := cmd.Parameter(key)
	if !found || v == "" {
		return "", fmt.Errorf("%s command requires %s=<file>", cmd.Name(), key)
	}
	return v, nil
}

func triple(cmd dvid.Command, key string) ([]float32, error) {
	s, found := cmd.Parameter(key)
	if !found {
		return nil, nil
	}
	vals, err := dvid.StringToFloat32s(s, ",")
	if err != nil {
		return nil, err
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("%s needs 3 comma-separated values, got %q", key, s)
	}
	return vals, nil
}

// DoRelax relaxes responsibilities stored in local files.
func DoRelax(ctx context.Context, cmd dvid.Command) error {
	qFile, err := requiredSetting(cmd, "q")
	if err != nil {
		return err
	}
	pFile, err := requiredSetting(cmd, "p")
	if err != nil {
		return err
	}
	gFile, err := requiredSetting(cmd, "g")
	if err != nil {
		return err
	}
	outFile, found := cmd.Parameter("out")
	if !found {
		outFile = qFile
	}
	steps := 1
	if s, found := cmd.Parameter("steps"); found {
		if steps, err = strconv.Atoi(s); err != nil {
			return fmt.Errorf("bad steps %q: %v", s, err)
		}
	}
	compress, err := compression(cmd)
	if err != nil {
		return err
	}

	opts := mrf.Options{InPlace: true, Workers: dvid.NumCPU}
	anisotropy, err := triple(cmd, "anisotropy")
	if err != nil {
		return err
	}
	voxelSize, err := triple(cmd, "voxelsize")
	if err != nil {
		return err
	}
	switch {
	case anisotropy != nil && voxelSize != nil:
		return fmt.Errorf("give either anisotropy or voxelsize, not both")
	case anisotropy != nil:
		w, err := mrf.NewAnisotropy(anisotropy)
		if err != nil {
			return err
		}
		opts.Anisotropy = &w
	case voxelSize != nil:
		w := mrf.AnisotropyFromVoxelSize(voxelSize[0], voxelSize[1], voxelSize[2])
		opts.Anisotropy = &w
	}

	q, err := readKind(qFile, datastore.Responsibilities)
	if err != nil {
		return err
	}
	p, err := readKind(pFile, datastore.Priors)
	if err != nil {
		return err
	}
	g, err := readKind(gFile, datastore.Interaction)
	if err != nil {
		return err
	}

	timedLog := dvid.NewTimeLog()
	out, err := mrf.RelaxSteps(ctx, q.Q, p.P, g.G, steps, opts)
	var degenerate *mrf.DegenerateError
	if err != nil && !errors.As(err, &degenerate) {
		return err
	}
	if degenerate != nil {
		fmt.Printf("Warning: %v\n", degenerate)
	}
	if err := datastore.WriteFile(outFile, &datastore.Volume{Kind: datastore.Responsibilities, Q: out}, compress); err != nil {
		return err
	}
	timedLog.Infof("Relaxed %s with %s interaction for %d step(s) into %s", out.Dims, g.G.Mode(), steps, outFile)
	return nil
}

// compression returns the "compression" setting, zstd by default.
func compression(cmd dvid.Command) (dvid.Compression, error) {
	name, _ := cmd.Parameter("compression")
	if name == "" {
		name = "zstd"
	}
	return dvid.ParseCompression(name)
}

func readKind(filename string, kind datastore.Kind) (*datastore.Volume, error) {
	v, err := datastore.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if v.Kind != kind {
		return nil, fmt.Errorf("%s holds %s, expected %s", filename, v.Kind, kind)
	}
	return v, nil
}

// DoInfo prints a description of an encoded volume file.
func DoInfo(cmd dvid.Command) error {
	filename := cmd.Argument(1)
	if filename == "" {
		return fmt.Errorf("info command must be followed by a volume file")
	}
	st, err := os.Stat(filename)
	if err != nil {
		return err
	}
	v, err := datastore.ReadFile(filename)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s with dims %s, %s on disk\n", filename, v.Kind, v.Dims(), humanize.Bytes(uint64(st.Size())))
	if v.G != nil {
		fmt.Printf("interaction encoding %s, shape %v, %s of weights\n", v.G.Mode(), v.G.Shape(), humanize.Bytes(uint64(v.G.NumBytes())))
	}
	if v.Q != nil {
		counts := labelCounts(v.Q)
		for k, n := range counts {
			if n > 0 {
				fmt.Printf("  class %d: %s voxels\n", k, humanize.Comma(int64(n)))
			}
		}
	}
	return nil
}

// labelCounts returns the number of voxels whose most responsible class is k.
func labelCounts(q *mrf.Responsibilities) []int {
	counts := make([]int, q.K)
	for _, label := range q.Labels() {
		counts[label]++
	}
	return counts
}

// DoConvert re-encodes an interaction file into a packed encoding.
func DoConvert(cmd dvid.Command) error {
	inFile, outFile := cmd.Argument(1), cmd.Argument(2)
	if inFile == "" || outFile == "" {
		return fmt.Errorf("convert command must be followed by input and output files")
	}
	modeName, found := cmd.Parameter("mode")
	if !found {
		return fmt.Errorf("convert command requires mode=%s or mode=%s", mrf.PackedFloat, mrf.PackedQuantized)
	}
	mode, err := mrf.ParseMode(modeName)
	if err != nil {
		return err
	}
	compress, err := compression(cmd)
	if err != nil {
		return err
	}
	v, err := readKind(inFile, datastore.Interaction)
	if err != nil {
		return err
	}
	g, err := convertInteraction(v.G, mode)
	if err != nil {
		return err
	}
	if err := datastore.WriteFile(outFile, &datastore.Volume{Kind: datastore.Interaction, G: g}, compress); err != nil {
		return err
	}
	dvid.Infof("Converted %s interaction in %s to %s in %s", v.G.Mode(), inFile, g.Mode(), outFile)
	return nil
}

func convertInteraction(g *mrf.Interaction, mode mrf.Mode) (*mrf.Interaction, error) {
	if mode != mrf.PackedFloat && mode != mrf.PackedQuantized {
		return nil, fmt.Errorf("can only convert to %s or %s, not %s", mrf.PackedFloat, mrf.PackedQuantized, mode)
	}
	var err error
	if g.Mode() == mrf.VoxelDense {
		if g, err = g.Pack(); err != nil {
			return nil, err
		}
	}
	if mode == mrf.PackedQuantized && g.Mode() == mrf.PackedFloat {
		if g, err = g.Quantize(); err != nil {
			return nil, err
		}
	}
	if g.Mode() != mode {
		return nil, fmt.Errorf("cannot convert %s interaction to %s", g.Mode(), mode)
	}
	return g, nil
}

// DoToken prints a JWT for a user.
func DoToken(cmd dvid.Command) error {
	configPath, user := cmd.Argument(1), cmd.Argument(2)
	if configPath == "" || user == "" {
		return fmt.Errorf("token command must be followed by the TOML configuration and a user name")
	}
	config, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if config.Auth.SecretKey == "" {
		return fmt.Errorf("no [auth] secret_key in %s", configPath)
	}
	token, err := server.GenerateJWT(config.Auth.SecretKey, user)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
