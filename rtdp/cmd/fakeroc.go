package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/JeffersonLab/SRO-RTDP-sub001/admission"
	"github.com/JeffersonLab/SRO-RTDP-sub001/config"
	"github.com/JeffersonLab/SRO-RTDP-sub001/fakeroc"
	"github.com/spf13/cobra"
)

var fakerocCmd = &cobra.Command{
	Use:   "fakeroc",
	Short: "Impersonate a readout controller.",
	Long: "`fakeroc --ip 10.0.0.5 --id 3` connects to an aggregator, sends " +
		"the handshake, uploads an evio file or synthetic built events on " +
		"every stream and ends each stream.",
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		f := cmd.Flags()

		ip, _ := f.GetString("ip")
		port, _ := f.GetInt("port")
		codaID, _ := f.GetInt32("id")
		name, _ := f.GetString("name")
		expid, _ := f.GetString("expid")
		envFile, _ := f.GetString("env-file")
		streams, _ := f.GetInt("streams")
		udp, _ := f.GetBool("udp")
		debug, _ := f.GetBool("debug")

		if ip == "" {
			fatal("provide the address of the aggregator with --ip")
		}

		if port < config.MinPort || port > config.MaxPort {
			port = config.DefaultPort
		}

		if expid == "" {
			v, ok := lookupChain(envFile)(config.ExperimentIDVariable)
			if !ok {
				fatal("provide an experiment id with -x or in $%s",
					config.ExperimentIDVariable)
			}

			expid = v
		}

		if streams < 1 || streams > 255 {
			fatal("--streams must be in 1..255, got %d", streams)
		}

		transport := admission.TransportTCP
		if udp {
			transport = admission.TransportUDP
		}

		src := fakeroc.MakeBuilder().
			WithHost(ip).
			WithPort(port).
			WithTransport(transport).
			WithCodaID(codaID).
			WithStreams(streams).
			WithVerbose(debug).
			WithLogger(log.New(os.Stderr, name+": ", log.LstdFlags)).
			Build(name)

		ctx, stop := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := src.Connect(ctx); err != nil {
			fatal("%v", err)
		}
		defer src.Close()

		fmt.Fprintf(os.Stderr, "%s: experiment %s\n", name, expid)

		for stream := 0; stream < streams; stream++ {
			if err := upload(ctx, cmd, src, stream); err != nil {
				fatal("stream %d: %v", stream, err)
			}
		}

		if err := src.EndAll(); err != nil {
			fatal("%v", err)
		}

		fmt.Fprintf(os.Stderr, "%s: sent %d blocks on %d streams\n",
			name, src.BlocksSent(), streams)
	},
}

func init() {
	rootCmd.AddCommand(fakerocCmd)

	f := fakerocCmd.Flags()

	f.String("ip", "", "address of the aggregator")
	f.IntP("port", "p", config.DefaultPort, "port of the aggregator")
	f.Int32("id", 0, "CODA id announced in the handshake")
	f.StringP("name", "n", "RocSim", "name of the fake readout controller")
	f.StringP("expid", "x", "",
		"experiment id, defaults to $"+config.ExperimentIDVariable)
	f.String("env-file", config.DefaultEnvFile,
		"file holding variables missing from the environment")
	f.Int("streams", 1, "streams carried by the connection")
	f.Bool("udp", false, "send datagrams instead of a TCP stream")
	f.String("file", "", "evio file to upload, synthetic events if empty")
	f.Int("events", 1000, "number of synthetic physics events per stream")
	f.IntSlice("rocs", []int{1, 2}, "source ids listed in synthetic events")
	f.Int("payload", 1024, "bytes of data per source in synthetic events")
	f.Int("per-block", 10, "events per evio block")
	f.Bool("debug", false, "turn on printout")
}

func upload(
	ctx context.Context,
	cmd *cobra.Command,
	src *fakeroc.Source,
	stream int,
) error {
	f := cmd.Flags()
	perBlock, _ := f.GetInt("per-block")
	file, _ := f.GetString("file")

	if file != "" {
		in, err := os.Open(file)
		if err != nil {
			return err
		}
		defer in.Close()

		_, err = src.SendFile(ctx, stream, perBlock, in)

		return err
	}

	count, _ := f.GetInt("events")
	payload, _ := f.GetInt("payload")
	rocs, _ := f.GetIntSlice("rocs")

	ids := make([]uint8, 0, len(rocs))
	for _, id := range rocs {
		if id < 0 || id > 255 {
			return fmt.Errorf("source id %d does not fit in a segment tag", id)
		}

		ids = append(ids, uint8(id))
	}

	return src.SendEvents(ctx, stream, perBlock,
		fakeroc.Synthetic(count, ids, payload))
}
