package cli

import (
	"github.com/spf13/cobra"

	"github.com/pboyd/inject"
)

func (a *app) newInspectCmd() *cobra.Command {
	var disasm bool

	cmd := &cobra.Command{
		Use:   "inspect <module>",
		Short: "Print a module's references, types and type initializers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := inject.LoadModule(args[0])
			if err != nil {
				return err
			}

			printf(cmd, "references:\n")
			for _, r := range m.References {
				printf(cmd, "  %s %s\n", r.Name, r.Version)
			}

			printf(cmd, "member references:\n")
			for _, r := range m.MemberRefs {
				printf(cmd, "  %s\n", r.FullName())
			}

			printf(cmd, "types:\n")
			for i, t := range m.Types {
				printf(cmd, "  %s flags=0x%08x methods=%d\n", t.FullName(), uint32(t.Flags), len(m.MethodsOf(i)))
				for _, mi := range m.MethodsOf(i) {
					md := m.Methods[mi]
					if md.Body == nil || !(disasm || md.Name == ".cctor") {
						continue
					}
					text, err := md.Body.Disassemble(m)
					if err != nil {
						printf(cmd, "    %s: %v\n", md.Name, err)
						continue
					}
					printf(cmd, "    %s:\n%s", md.Name, indent(text, "      "))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&disasm, "disasm", false, "disassemble every method, not just type initializers")
	return cmd
}

func indent(s, prefix string) string {
	out := make([]byte, 0, len(s))
	start := true
	for i := 0; i < len(s); i++ {
		if start {
			out = append(out, prefix...)
		}
		out = append(out, s[i])
		start = s[i] == '\n'
	}
	return string(out)
}
