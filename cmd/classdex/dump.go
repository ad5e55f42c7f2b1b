package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"classdex/internal/attrib"
	"classdex/internal/classfile"
	"classdex/internal/dexfile"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print the structure of a class file or .dex container",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().Bool("dex", false, "read the file as a .dex container")
	dumpCmd.Flags().Bool("pool", false, "include the constant pool")
}

func runDump(cmd *cobra.Command, args []string) error {
	path := args[0]
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	asDex, _ := cmd.Flags().GetBool("dex")
	withPool, _ := cmd.Flags().GetBool("pool")

	var tree treeprint.Tree
	if asDex || strings.EqualFold(filepath.Ext(path), ".dex") {
		d, err := dexfile.Read(b)
		if err != nil {
			return err
		}
		tree = dexTree(d)
	} else {
		cf, err := classfile.Parse(b, "", classfile.Options{})
		if err != nil {
			return err
		}
		tree = classTree(cf, withPool)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), tree.String())
	return err
}

func classTree(cf *classfile.ClassFile, withPool bool) treeprint.Tree {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("%s (version %d.%d, flags %#04x)", cf.ThisClass.Descriptor, cf.MajorVersion, cf.MinorVersion, cf.AccessFlags))
	if cf.SuperClass != nil {
		tree.AddMetaNode("super", cf.SuperClass.Descriptor)
	}
	for _, t := range cf.Interfaces {
		tree.AddMetaNode("implements", t.Descriptor)
	}
	if withPool {
		pool := tree.AddBranch(fmt.Sprintf("constant pool (%d)", cf.Pool.Size()))
		for i := 1; i < cf.Pool.Size(); i++ {
			if c := cf.Pool.GetOrNil(i); c != nil {
				pool.AddMetaNode(fmt.Sprintf("#%d", i), c.String())
			}
		}
	}
	members := func(label string, list []classfile.Member) {
		if len(list) == 0 {
			return
		}
		br := tree.AddBranch(fmt.Sprintf("%s (%d)", label, len(list)))
		for i := range list {
			m := &list[i]
			node := br.AddMetaBranch(fmt.Sprintf("%#04x", m.AccessFlags), m.Name()+" "+m.Descriptor())
			addAttributes(node, m.Attributes)
		}
	}
	members("fields", cf.Fields)
	members("methods", cf.Methods)
	addAttributes(tree, cf.Attributes)
	return tree
}

func addAttributes(tree treeprint.Tree, list attrib.List) {
	for _, a := range list {
		switch a := a.(type) {
		case *attrib.Code:
			code := tree.AddMetaBranch(a.Name(), fmt.Sprintf("stack %d, locals %d, %d bytes, %d handlers",
				a.MaxStack, a.MaxLocals, a.Bytecode.Len(), len(a.Catches)))
			addAttributes(code, a.Attributes)
		case *attrib.SourceFile:
			tree.AddMetaNode(a.Name(), a.Value.Value)
		default:
			tree.AddMetaNode(a.Name(), fmt.Sprintf("%d bytes", a.ByteLength()))
		}
	}
}

func dexTree(d *dexfile.Dex) treeprint.Tree {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("dex (%d bytes, checksum %08x)", d.Header.FileSize, d.Header.Checksum))
	ids := tree.AddBranch("ids")
	ids.AddMetaNode("strings", len(d.Strings))
	ids.AddMetaNode("types", len(d.Types))
	ids.AddMetaNode("protos", len(d.Protos))
	ids.AddMetaNode("fields", len(d.Fields))
	ids.AddMetaNode("methods", len(d.Methods))
	for _, c := range d.Classes {
		cl := tree.AddMetaBranch(fmt.Sprintf("%#04x", c.AccessFlags), c.Class.Descriptor)
		if c.Super != nil {
			cl.AddMetaNode("super", c.Super.Descriptor)
		}
		if c.SourceFile != "" {
			cl.AddMetaNode("source", c.SourceFile)
		}
		for i, f := range c.StaticFields {
			name := f.Ref.NAT.Name.Value + ":" + f.Ref.NAT.Descriptor.Value
			if i < len(c.StaticValues) {
				name += " = " + c.StaticValues[i].String()
			}
			cl.AddMetaNode("static", name)
		}
		for _, f := range c.InstanceFields {
			cl.AddMetaNode("field", f.Ref.NAT.Name.Value+":"+f.Ref.NAT.Descriptor.Value)
		}
		methods := func(kind string, list []dexfile.MethodEntry) {
			for _, m := range list {
				node := cl.AddMetaBranch(kind, m.Ref.NAT.Name.Value+m.Ref.NAT.Descriptor.Value)
				if m.Code != nil {
					node.AddNode(fmt.Sprintf("registers %d, ins %d, outs %d, %d code units",
						m.Code.RegistersSize, m.Code.InsSize, m.Code.OutsSize, len(m.Code.Insns)))
				}
			}
		}
		methods("direct", c.DirectMethods)
		methods("virtual", c.VirtualMethods)
	}
	return tree
}
