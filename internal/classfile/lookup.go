package classfile

import "classdex/internal/cst"

func poolString(pool cst.Pool, idx int) (cst.String, error) {
	c, err := pool.Get(idx)
	if err != nil {
		return cst.String{}, malformed("%v", err)
	}
	s, ok := c.(cst.String)
	if !ok {
		return cst.String{}, malformed("constant pool entry %04x is %s, expected utf8", idx, c.Kind())
	}
	return s, nil
}

func poolString0(pool cst.Pool, idx int) (*cst.String, error) {
	if idx == 0 {
		return nil, nil
	}
	s, err := poolString(pool, idx)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func poolType(pool cst.Pool, idx int) (cst.Type, error) {
	c, err := pool.Get(idx)
	if err != nil {
		return cst.Type{}, malformed("%v", err)
	}
	t, ok := c.(cst.Type)
	if !ok {
		return cst.Type{}, malformed("constant pool entry %04x is %s, expected class", idx, c.Kind())
	}
	return t, nil
}

func poolType0(pool cst.Pool, idx int) (*cst.Type, error) {
	if idx == 0 {
		return nil, nil
	}
	t, err := poolType(pool, idx)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func poolNAT0(pool cst.Pool, idx int) (*cst.NameAndType, error) {
	if idx == 0 {
		return nil, nil
	}
	c, err := pool.Get(idx)
	if err != nil {
		return nil, malformed("%v", err)
	}
	n, ok := c.(cst.NameAndType)
	if !ok {
		return nil, malformed("constant pool entry %04x is %s, expected name-and-type", idx, c.Kind())
	}
	return &n, nil
}
