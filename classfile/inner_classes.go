package classfile

// Flags an InnerClasses entry may carry; other bits are masked off.
const recognizedInnerClassFlags = AccPublic | AccPrivate | AccProtected | AccStatic | AccFinal |
	AccInterface | AccAbstract | AccSynthetic | AccAnnotation | AccEnum

func readInnerClasses(p *parser, r *ByteReader) (any, error) {
	count := r.ReadU2()
	ic := &InnerClassesAttribute{Classes: make([]InnerClassEntry, count)}
	for i := range ic.Classes {
		e := InnerClassEntry{
			InnerClassInfoIndex:   r.ReadU2(),
			OuterClassInfoIndex:   r.ReadU2(),
			InnerNameIndex:        r.ReadU2(),
			InnerClassAccessFlags: AccessFlags(r.ReadU2()) & recognizedInnerClassFlags,
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		if err := p.checkInnerClassEntry(e); err != nil {
			return nil, err
		}
		for j := 0; j < i; j++ {
			prev := ic.Classes[j]
			if prev.InnerClassInfoIndex == e.InnerClassInfoIndex && prev.OuterClassInfoIndex == e.OuterClassInfoIndex {
				return nil, semanticError("duplicate entry in InnerClasses attribute of %s", p.className)
			}
		}
		ic.Classes[i] = e
	}

	if reason := p.innerClassesInconsistency(ic.Classes); reason != "" {
		p.log.Warningf("ignoring InnerClasses attribute of %s: %s", p.className, reason)
		return &InnerClassesAttribute{}, nil
	}

	for _, e := range ic.Classes {
		if e.InnerClassInfoIndex == 0 {
			continue
		}
		inner, _ := p.pool.ClassAt(e.InnerClassInfoIndex)
		if e.InnerClassInfoIndex != p.thisClassIndex && inner != p.className {
			continue
		}
		p.hasInnerRecord = true
		p.innerFlags = e.InnerClassAccessFlags
		p.outerClass = nil
		if e.OuterClassInfoIndex != 0 {
			p.outerClass, _ = p.pool.ClassAt(e.OuterClassInfoIndex)
		}
	}
	return ic, nil
}

func (p *parser) checkInnerClassEntry(e InnerClassEntry) error {
	if e.InnerClassInfoIndex != 0 {
		if _, err := p.pool.ClassAt(e.InnerClassInfoIndex); err != nil {
			return formatError(err, "invalid inner class index %d", e.InnerClassInfoIndex)
		}
	}
	if e.OuterClassInfoIndex != 0 {
		if _, err := p.pool.ClassAt(e.OuterClassInfoIndex); err != nil {
			return formatError(err, "invalid outer class index %d", e.OuterClassInfoIndex)
		}
	}
	if e.InnerNameIndex != 0 {
		if _, err := p.pool.Utf8At(e.InnerNameIndex); err != nil {
			return formatError(err, "invalid inner name index %d", e.InnerNameIndex)
		}
	}
	if e.InnerClassInfoIndex != 0 && e.InnerClassInfoIndex == e.OuterClassInfoIndex {
		return semanticError("class is both outer and inner class in InnerClasses attribute of %s", p.className)
	}
	return nil
}

// innerClassesInconsistency reports why the entries cannot be used: an
// inner class listed twice, or outer classes forming a cycle.
func (p *parser) innerClassesInconsistency(entries []InnerClassEntry) string {
	outerOf := make(map[*Symbol]*Symbol, len(entries))
	for _, e := range entries {
		if e.InnerClassInfoIndex == 0 {
			continue
		}
		inner, _ := p.pool.ClassAt(e.InnerClassInfoIndex)
		if _, dup := outerOf[inner]; dup {
			return "duplicate inner class " + inner.String()
		}
		var outer *Symbol
		if e.OuterClassInfoIndex != 0 {
			outer, _ = p.pool.ClassAt(e.OuterClassInfoIndex)
		}
		outerOf[inner] = outer
	}
	for start := range outerOf {
		visited := map[*Symbol]bool{start: true}
		for c := outerOf[start]; c != nil; c = outerOf[c] {
			if visited[c] {
				return "cycle through " + c.String()
			}
			visited[c] = true
		}
	}
	return ""
}
