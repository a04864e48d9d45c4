package classfile

func checkClassFlags(flags AccessFlags, major uint16) error {
	isInterface := flags.IsInterface()
	invalid := (flags.IsAbstract() && flags.IsFinal()) ||
		(isInterface && !flags.IsAbstract())
	if major >= Java5 {
		invalid = invalid ||
			(isInterface && (flags.IsSuper() || flags.IsEnum())) ||
			(!isInterface && flags.IsAnnotation())
	}
	if invalid {
		return semanticError("illegal class modifiers 0x%04X", uint16(flags))
	}
	return nil
}

func checkFieldFlags(flags AccessFlags, isInterface bool) error {
	if isInterface {
		if flags&^AccSynthetic != AccPublic|AccStatic|AccFinal {
			return semanticError("illegal interface field modifiers 0x%04X", uint16(flags))
		}
		return nil
	}
	if flags.visibilityCount() > 1 || (flags.IsFinal() && flags.IsVolatile()) {
		return semanticError("illegal field modifiers 0x%04X", uint16(flags))
	}
	return nil
}

// checkMethodFlags validates every method except class initializers, whose
// flags are normalized instead.
func checkMethodFlags(flags AccessFlags, isInterface bool, name string, major uint16) error {
	invalid := false
	if isInterface {
		if name == InitMethodName {
			return semanticError("interface method %s is not allowed", name)
		}
		if major >= PrivateInterfaceMajorVersion {
			invalid = flags.IsPublic() == flags.IsPrivate() ||
				flags&(AccProtected|AccFinal|AccSynchronized|AccNative) != 0
		} else {
			invalid = !flags.IsPublic() || !flags.IsAbstract() ||
				flags&(AccPrivate|AccProtected|AccStatic|AccFinal|AccSynchronized|AccNative) != 0
		}
	} else {
		invalid = flags.visibilityCount() > 1
		if name == InitMethodName && flags&^(visibilityFlags|AccVarargs|AccStrict|AccSynthetic) != 0 {
			invalid = true
		}
	}
	if flags.IsAbstract() {
		if flags&(AccPrivate|AccStatic|AccFinal|AccNative) != 0 {
			invalid = true
		}
		if major >= Java5 && flags&(AccSynchronized|AccStrict) != 0 {
			invalid = true
		}
	}
	if invalid {
		return semanticError("illegal method modifiers 0x%04X", uint16(flags))
	}
	return nil
}
