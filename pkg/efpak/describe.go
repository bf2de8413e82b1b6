package efpak

import "fmt"

// sprintfCommon and the per-type tail formatters back Header.Describe,
// reproducing the original tool's do_list output: every header field plus
// whatever the block type adds, without needing to touch the payload.

func sprintfCommon(h *Header) string {
	return fmt.Sprintf("vers=%d type=%s comp=%d header_size=%d comp_data_size=%d raw_data_size=%d",
		h.Vers, h.Type, h.Comp, h.HeaderSize, h.CompDataSize, h.RawDataSize)
}

func fmtFormatTail(h *Header) string {
	return fmt.Sprintf(" signature=%q format_vers=%d", h.FormatSig, h.FormatVers)
}

func fmtPartTail(h *Header) string {
	return fmt.Sprintf(" part_id=%s fs_id=%s", h.PartID, h.FsID)
}

func fmtFileTail(h *Header) string {
	if h.PathInvalid {
		return " path=<invalid: not NUL-terminated>"
	}
	return fmt.Sprintf(" path=%q", h.Path)
}

func fmtHookTail(h *Header) string {
	if h.PathInvalid {
		return fmt.Sprintf(" when_flags=0x%x exec_flags=0x%x path=<invalid: not NUL-terminated>", h.HookWhen, h.HookExec)
	}
	return fmt.Sprintf(" when_flags=0x%x exec_flags=0x%x path=%q", h.HookWhen, h.HookExec, h.Path)
}
