package parts

// Merge folds src into dst and returns the extended slice. Each incoming part
// is combined with the current last part of dst when both are of the same
// streamable kind, otherwise it is appended:
//
//	Text + Text                               text concatenated
//	InlineData + InlineData                   base64 data concatenated
//	ExecutableCode + ExecutableCode           code concatenated
//	CodeExecutionResult + CodeExecutionResult output concatenated
//
// Every part of src is processed, so multi-part batches are never truncated.
func Merge(dst, src []Part) []Part {
	for _, p := range src {
		dst = mergeOne(dst, p)
	}
	return dst
}

func mergeOne(dst []Part, in Part) []Part {
	if len(dst) == 0 {
		return append(dst, in)
	}
	last := len(dst) - 1

	switch next := in.(type) {
	case Text:
		if prev, ok := dst[last].(Text); ok {
			dst[last] = prev + next
			return dst
		}
	case InlineData:
		if prev, ok := dst[last].(InlineData); ok {
			prev.Data += next.Data
			dst[last] = prev
			return dst
		}
	case ExecutableCode:
		if prev, ok := dst[last].(ExecutableCode); ok {
			prev.Code += next.Code
			dst[last] = prev
			return dst
		}
	case CodeExecutionResult:
		if prev, ok := dst[last].(CodeExecutionResult); ok {
			prev.Output = mergeOutput(prev.Output, next.Output)
			dst[last] = prev
			return dst
		}
	}

	return append(dst, in)
}

// mergeOutput appends next to prev. An absent prev is replaced by next.
func mergeOutput(prev, next *string) *string {
	if prev == nil {
		if next == nil {
			return nil
		}
		s := *next
		return &s
	}
	s := *prev
	if next != nil {
		s += *next
	}
	return &s
}
