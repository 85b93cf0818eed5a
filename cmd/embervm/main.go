// embervm: command line host for the Ember VM.
//
// Subcommands:
//
//	inspect  - decode a module file and print its disassembly
//	validate - run static validation against the default limits
//	store    - put a module into a content-addressed store, or list it
//	call     - execute an exported function of a module
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"

	"github.com/emberchain/ember/internal/types"
	"github.com/emberchain/ember/pkg/modstore"
	"github.com/emberchain/ember/pkg/state"
	"github.com/emberchain/ember/pkg/vm"
	"github.com/emberchain/ember/pkg/vm/abi"
	"github.com/emberchain/ember/pkg/vm/bridge"
	"github.com/emberchain/ember/pkg/vm/codec"
	"github.com/emberchain/ember/pkg/vm/interp"
	"github.com/emberchain/ember/pkg/vm/ir"
	"github.com/emberchain/ember/pkg/vm/validate"

	emberrt "github.com/emberchain/ember/pkg/runtime"
)

var version = "0.1.0"

func main() {
	log.SetFlags(0)
	log.SetPrefix("embervm: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "inspect":
		err = cmdInspect(os.Args[2:])
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "store":
		err = cmdStore(os.Args[2:])
	case "call":
		err = cmdCall(os.Args[2:])
	case "version":
		fmt.Printf("embervm %s\n", version)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: embervm <inspect|validate|store|call|version> [flags]")
}

func loadModule(path string) (*ir.Module, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := codec.Decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, raw, nil
}

func loadManifest(path string) (*abi.Manifest, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var man abi.Manifest
	if err := json.Unmarshal(raw, &man); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &man, nil
}

func cmdInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	modPath := fs.String("module", "", "Path to the encoded module")
	fs.Parse(args)
	if *modPath == "" {
		return fmt.Errorf("inspect: -module is required")
	}
	m, raw, err := loadModule(*modPath)
	if err != nil {
		return err
	}
	fmt.Printf("module %s: version %d, %d consts, %d funcs, %d bytes\n",
		*modPath, m.Version, len(m.Consts), len(m.Funcs), len(raw))
	fmt.Print(ir.Disassemble(m))
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	modPath := fs.String("module", "", "Path to the encoded module")
	manPath := fs.String("manifest", "", "Path to the JSON manifest (optional)")
	fs.Parse(args)
	if *modPath == "" {
		return fmt.Errorf("validate: -module is required")
	}
	m, _, err := loadModule(*modPath)
	if err != nil {
		return err
	}
	man, err := loadManifest(*manPath)
	if err != nil {
		return err
	}
	if err := validate.Module(m, vm.DefaultLimits(), bridge.StandardDefs(), man); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	fmt.Println("ok")
	return nil
}

func cmdStore(args []string) error {
	fs := flag.NewFlagSet("store", flag.ExitOnError)
	modPath := fs.String("module", "", "Path to the encoded module to put")
	list := fs.Bool("list", false, "List digests of stored modules")
	dataDir := fs.String("data-dir", "ember-data", "Module store directory")
	fs.Parse(args)
	if *modPath == "" && !*list {
		return fmt.Errorf("store: -module or -list is required")
	}
	st, err := modstore.Open(modstore.DefaultConfig(*dataDir))
	if err != nil {
		return err
	}
	defer st.Close()
	if *modPath != "" {
		raw, err := os.ReadFile(*modPath)
		if err != nil {
			return err
		}
		digest, err := st.Put(raw)
		if err != nil {
			return err
		}
		fmt.Printf("stored %s\n", digest)
	}
	if *list {
		digests, err := st.List()
		if err != nil {
			return err
		}
		for _, d := range digests {
			fmt.Println(d)
		}
	}
	return nil
}

func cmdCall(args []string) error {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	modPath := fs.String("module", "", "Path to the encoded module")
	manPath := fs.String("manifest", "", "Path to the JSON manifest")
	statePath := fs.String("state", "", "Path to the BoltDB state file (empty = in-memory)")
	fnName := fs.String("fn", "", "Exported function name")
	argList := fs.String("args", "", "Comma-separated arguments (int, true/false, 0x... bytes)")
	gasLimit := fs.Uint64("gas", 1_000_000, "Gas limit")
	seedHex := fs.String("seed", "", "Randomness seed, hex")
	verbose := fs.Bool("v", false, "Log call details")
	fs.Parse(args)
	if *modPath == "" || *manPath == "" || *fnName == "" {
		return fmt.Errorf("call: -module, -manifest, and -fn are required")
	}

	man, err := loadManifest(*manPath)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(*modPath)
	if err != nil {
		return err
	}

	var store state.Store
	if *statePath == "" {
		store = state.NewMemory()
	} else {
		bs, err := state.OpenBolt(state.DefaultBoltConfig(*statePath))
		if err != nil {
			return err
		}
		store = bs
	}
	defer store.Close()

	cfg := emberrt.Config{}
	if *verbose {
		cfg.Logger = log.Default()
	}
	rt, err := emberrt.Load(raw, man, store, cfg)
	if err != nil {
		return err
	}

	var fn *abi.Function
	for i := range man.Functions {
		if man.Functions[i].Name == *fnName {
			fn = &man.Functions[i]
			break
		}
	}
	if fn == nil {
		return fmt.Errorf("call: function %q not in manifest", *fnName)
	}
	vals, err := parseArgs(fn.Params, splitArgs(*argList))
	if err != nil {
		return err
	}
	payload, err := abi.EncodeCall(fn.Selector(), fn.Params, vals)
	if err != nil {
		return err
	}

	seed, err := hex.DecodeString(*seedHex)
	if err != nil {
		return fmt.Errorf("call: bad -seed: %w", err)
	}
	rcpt, err := rt.Call(payload, emberrt.CallContext{GasLimit: *gasLimit, Seed: seed})
	if err != nil {
		return err
	}

	fmt.Printf("status: %s\n", rcpt.Status)
	if rcpt.Status == interp.StatusFault {
		fmt.Printf("fault: %s\n", rcpt.Fault)
	}
	fmt.Printf("gas used: %d (refund hint %d)\n", rcpt.GasUsed, rcpt.RefundHint)
	if len(rcpt.Data) > 0 {
		fmt.Printf("data: 0x%x\n", rcpt.Data)
	}
	for _, ev := range rcpt.Events {
		fmt.Printf("event %q: 0x%x\n", ev.Topic, ev.Data)
	}
	for _, t := range rcpt.Tasks {
		fmt.Printf("task %d: 0x%x\n", t.ID, t.Payload)
	}
	return nil
}

// parseArgs converts textual arguments to VM values against the declared
// parameter types. Integers are decimal, booleans true/false, bytes hex
// with an 0x prefix, addresses base58.
func parseArgs(params []abi.Type, raw []string) ([]vm.Value, error) {
	if len(raw) != len(params) {
		return nil, fmt.Errorf("call: %d args for %d params", len(raw), len(params))
	}
	vals := make([]vm.Value, len(raw))
	for i, s := range raw {
		switch params[i].Kind {
		case abi.TBool:
			switch s {
			case "true":
				vals[i] = vm.BoolValue(true)
			case "false":
				vals[i] = vm.BoolValue(false)
			default:
				return nil, fmt.Errorf("call: arg %d: %q is not a bool", i, s)
			}
		case abi.TInt:
			n, ok := new(big.Int).SetString(s, 10)
			if !ok {
				return nil, fmt.Errorf("call: arg %d: %q is not an int", i, s)
			}
			vals[i] = vm.IntValue(n)
		case abi.TBytes:
			b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
			if err != nil {
				return nil, fmt.Errorf("call: arg %d: %w", i, err)
			}
			vals[i] = vm.BytesValue(b)
		case abi.TAddress:
			addr, err := types.AddressFromBase58(s)
			if err != nil {
				return nil, fmt.Errorf("call: arg %d: %w", i, err)
			}
			vals[i] = vm.BytesValue(addr.Bytes())
		default:
			return nil, fmt.Errorf("call: arg %d: %s arguments are not supported on the command line", i, params[i])
		}
	}
	return vals, nil
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
